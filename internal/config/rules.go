package config

import (
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"
)

// ExtractRule maps archive entry names to targets under the download root.
// Rules are evaluated in configuration order and the first match wins.
type ExtractRule struct {
	Raw     string
	Pattern *regexp.Regexp // anchored at the start of the entry name
	Target  string
	Skip    bool // a null target in the configuration
}

// ExtractRules is an ordered list of extraction rules. A nil value means the
// source is a single file rather than an archive.
type ExtractRules []ExtractRule

// NewExtractRule compiles pattern anchored at the start of the entry name.
func NewExtractRule(pattern, target string, skip bool) (ExtractRule, error) {
	re, err := regexp.Compile("^(?:" + pattern + ")")
	if err != nil {
		return ExtractRule{}, fmt.Errorf("invalid extract pattern %q: %w", pattern, err)
	}
	return ExtractRule{Raw: pattern, Pattern: re, Target: target, Skip: skip}, nil
}

// Match returns the first rule matching name and its submatches.
func (r ExtractRules) Match(name string) (*ExtractRule, []string) {
	for i := range r {
		if m := r[i].Pattern.FindStringSubmatch(name); m != nil {
			return &r[i], m
		}
	}
	return nil, nil
}

// identity returns ordered [pattern, target|null] pairs for lock identities.
func (r ExtractRules) identity() []any {
	if r == nil {
		return nil
	}
	out := make([]any, 0, len(r))
	for _, rule := range r {
		var target any
		if !rule.Skip {
			target = rule.Target
		}
		out = append(out, []any{rule.Raw, target})
	}
	return out
}

// UnmarshalYAML decodes either a mapping (order preserved) or a sequence of
// single-key mappings.
func (r *ExtractRules) UnmarshalYAML(node *yaml.Node) error {
	rules := ExtractRules{}
	err := eachPair(node, func(key, value *yaml.Node) error {
		skip := isNull(value)
		var target string
		if !skip {
			if value.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: extract target for %q must be a string or null", value.Line, key.Value)
			}
			target = value.Value
		}
		rule, err := NewExtractRule(key.Value, target, skip)
		if err != nil {
			return fmt.Errorf("line %d: %w", key.Line, err)
		}
		rules = append(rules, rule)
		return nil
	})
	if err != nil {
		return err
	}
	*r = rules
	return nil
}

// ReplacePair is one search/replacement applied to CSS output.
type ReplacePair struct {
	Raw         string
	Search      *regexp.Regexp
	Replacement string // Go expansion syntax
}

// ReplaceRule applies its pairs in order to every file whose relative path
// matches PathPattern.
type ReplaceRule struct {
	Raw         string
	PathPattern *regexp.Regexp
	Pairs       []ReplacePair
}

// ReplaceRules is the ordered transform table.
type ReplaceRules []ReplaceRule

// NewReplacePair compiles search and converts back-references in replacement.
func NewReplacePair(search, replacement string) (ReplacePair, error) {
	re, err := regexp.Compile(search)
	if err != nil {
		return ReplacePair{}, fmt.Errorf("invalid replace pattern %q: %w", search, err)
	}
	return ReplacePair{Raw: search, Search: re, Replacement: ConvertBackrefs(replacement)}, nil
}

// NewReplaceRule compiles pathPattern and attaches pairs in order.
func NewReplaceRule(pathPattern string, pairs ...ReplacePair) (ReplaceRule, error) {
	re, err := regexp.Compile(pathPattern)
	if err != nil {
		return ReplaceRule{}, fmt.Errorf("invalid replace path pattern %q: %w", pathPattern, err)
	}
	return ReplaceRule{Raw: pathPattern, PathPattern: re, Pairs: pairs}, nil
}

// UnmarshalYAML decodes `path_regex: {search_regex: replacement}` keeping
// configuration order at both levels.
func (r *ReplaceRules) UnmarshalYAML(node *yaml.Node) error {
	rules := ReplaceRules{}
	err := eachPair(node, func(key, value *yaml.Node) error {
		rule, err := NewReplaceRule(key.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", key.Line, err)
		}
		err = eachPair(value, func(search, repl *yaml.Node) error {
			if repl.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: replacement for %q must be a string", repl.Line, search.Value)
			}
			pair, perr := NewReplacePair(search.Value, repl.Value)
			if perr != nil {
				return fmt.Errorf("line %d: %w", search.Line, perr)
			}
			rule.Pairs = append(rule.Pairs, pair)
			return nil
		})
		if err != nil {
			return err
		}
		rules = append(rules, rule)
		return nil
	})
	if err != nil {
		return err
	}
	*r = rules
	return nil
}

var (
	pyNumericRef = regexp.MustCompile(`\\(\d+)`)
	pyNamedRef   = regexp.MustCompile(`\\g<(\w+)>`)
)

// ConvertBackrefs rewrites `\1` and `\g<name>` references into `${1}` and
// `${name}`.
func ConvertBackrefs(s string) string {
	s = pyNamedRef.ReplaceAllString(s, `$${$1}`)
	return pyNumericRef.ReplaceAllString(s, `$${$1}`)
}

func eachPair(node *yaml.Node, fn func(key, value *yaml.Node) error) error {
	switch node.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			if err := fn(node.Content[i], node.Content[i+1]); err != nil {
				return err
			}
		}
		return nil
	case yaml.SequenceNode:
		for _, item := range node.Content {
			if item.Kind != yaml.MappingNode || len(item.Content) != 2 {
				return fmt.Errorf("line %d: expected a single-key mapping", item.Line)
			}
			if err := fn(item.Content[0], item.Content[1]); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("line %d: expected a mapping", node.Line)
	}
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.ShortTag() == "!!null"
}

// MarshalYAML encodes the rules as an ordered mapping.
func (r ExtractRules) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, rule := range r {
		value := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
		if !rule.Skip {
			value = &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: rule.Target}
		}
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: rule.Raw}, value)
	}
	return node, nil
}

// MarshalYAML encodes the transform table as nested ordered mappings.
func (r ReplaceRules) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, rule := range r {
		pairs := &yaml.Node{Kind: yaml.MappingNode}
		for _, p := range rule.Pairs {
			pairs.Content = append(pairs.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: p.Raw},
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: p.Replacement})
		}
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: rule.Raw}, pairs)
	}
	return node, nil
}
