// Package api carries the OpenAPI document the HTTP server validates
// requests against.
package api

import _ "embed"

//go:embed openapi.yaml
var Spec []byte
