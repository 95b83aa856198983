package sqlassets

import _ "embed"

//go:embed schema/platform/tenants.sql
var TenantsSQL string
