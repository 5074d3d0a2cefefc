// Package plugins hosts plugin implementation subpackages. It contains no
// runtime code; plugins reach the model through internal/core and never
// import storage drivers.
package plugins
