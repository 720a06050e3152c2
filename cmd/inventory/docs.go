package main

// @title Inventory Reservation Engine API
// @version 1.0
// @description Stock ledger, checkout reservations, manual adjustments and bulk jobs.
// @description Writes under /api/inventory and /api/bulk-jobs need an admin bearer token.

// @contact.name Inventory team
// @contact.url http://github.com/tair/inventory-engine

// @host localhost:8082
// @BasePath /
// @schemes http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

// @tag.name Inventory
// @tag.description Inventory records, movements, adjustments and audit

// @tag.name Reservations
// @tag.description Time-boxed stock holds for checkout

// @tag.name BulkJobs
// @tag.description Asynchronous batch updates

// @tag.name Health
// @tag.description Liveness and storage connectivity
