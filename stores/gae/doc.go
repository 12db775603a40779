//go:build !wasm
// +build !wasm

// Package gae provides a Google Cloud Datastore implementation of
// accountlink.UserDirectory.  It supports multi-tenancy through Datastore
// namespaces.
//
// # Datastore Kinds
//
//   - User: one entity per account, keyed by user id
//   - Identity: one entity per unique identity ("email:<address>" or
//     "<provider>:<provider id>"), holding the owning user id
//
// Identity entities are read and written inside the same transaction as the
// user so uniqueness holds without relying on eventually consistent queries.
// FindByName is the only query and needs a composite index on
// (name, created_at).
//
// # Usage
//
//	client, _ := datastore.NewClient(ctx, projectID)
//	directory := gae.NewUserDirectory(client, "tenant-123")
package gae
