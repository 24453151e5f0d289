// Package hcl provides the HCL implementation of config.Loader. It parses
// every .hcl file under the given paths, decodes the top-level blocks with
// gohcl and translates them into the format-agnostic config.Model.
package hcl
