//go:build !wasm
// +build !wasm

// Package gorm provides a GORM-based accountlink.UserDirectory.  It supports
// any database that GORM supports (PostgreSQL, MySQL, SQLite, etc.).
//
// # Database Schema
//
// AutoMigrate creates the following tables:
//   - users: one row per account, email unique when present
//   - provider_links: (provider, provider_id) -> user_id, at most one link
//     per provider per user
//
// # Usage
//
//	db, _ := gorm.Open(sqlite.Open("accounts.db"), &gorm.Config{TranslateError: true})
//	gormstore.AutoMigrate(db)
//	directory := gormstore.NewUserDirectory(db)
package gorm
