// Package erp contains the domain model for talking to external ERP systems.
//
// It defines the Connector port that every ERP adapter implements, the
// tenant-scoped context attached to each operation, the error taxonomy shared
// by the actor pool and the adapters, and the sync run aggregate that tracks
// progress of catalog/customer/order synchronization.
//
// Concrete adapters (enventa, generic REST, sandbox) live in
// internal/infrastructure/connectors.
package erp
