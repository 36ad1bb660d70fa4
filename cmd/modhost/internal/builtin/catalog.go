// Package builtin holds the sample modules shipped with the modhost CLI.
package builtin

import "github.com/GoCodeAlone/modhost"

// Entry points of the built-in modules, as named in package manifests.
const (
	LoggingEntry   = "builtin.logging"
	AuditEntry     = "builtin.audit"
	ReportingEntry = "builtin.reporting"
)

// Catalog returns a catalog holding every built-in module.
func Catalog() *modhost.Catalog {
	c := modhost.NewCatalog()
	c.MustRegister(LoggingEntry, NewLogging)
	c.MustRegister(AuditEntry, NewAudit)
	c.MustRegister(ReportingEntry, NewReporting)
	return c
}
