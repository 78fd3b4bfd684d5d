// Package compile turns the build directory into the published stylesheet
// tree.
//
// Every build writes into a fresh staging directory next to the output
// directory. Sources are compiled one by one, post-processed (regex
// transforms, cache-busting names, source map references) and only when every
// file compiled is the staging tree moved into the output directory. A failed
// build leaves the output untouched.
package compile
