// Package core provides the business logic for importing craft projects
// from CSV files.
//
// The package is independent of any UI or transport layer and talks to
// persistence only through the [Store] interface. It can be used by web
// handlers, CLI tools, or tests without modification.
//
// # Pipeline
//
// An import runs in four stages, each reported through [ImportProgress]:
//
//  1. Pre-flight: [Importer.Preflight] checks the extension, size and
//     authenticated user. Nothing is written if it fails.
//  2. Parsing: [Parser] streams the file through BOM skipping and UTF-8
//     sanitization into [RawRow] maps keyed by trimmed header.
//  3. Normalizing: [Normalize] maps each row onto a [PartialProject],
//     accepting common header aliases and free-form values.
//  4. Tags and projects: [TagResolver] matches tag names to the user's
//     tags, creating missing ones with unique slugs, then one project is
//     created per row.
//
// A failed row never aborts the run. Tag problems only produce warnings.
// The run ends with an [ImportResult] whose [OutcomeKind] summarizes it.
//
// # Service
//
// [Service] wraps the importer for long-lived processes: it runs imports
// in the background, bounds concurrency with an [ImportLimiter] (one run
// per user, N overall), fans progress out to subscribers and keeps results
// for a short retention window.
//
//	id, err := svc.StartImport(ctx, core.ImportFile{Name: h.Filename, Size: h.Size, Reader: f})
//	ch, _ := svc.SubscribeProgress(id)
//	for p := range ch {
//	    fmt.Println(p.Phase, p.Percent)
//	}
//	result, err := svc.GetResult(ctx, id)
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - FILE001-FILE005: File errors (size, type, encoding, empty)
//   - AUTH001-AUTH002: Authentication errors
//   - IMP001-IMP006: Import errors (cancelled, busy, not found, timeout)
//   - TAG001-TAG002: Tag errors
//   - DB001-DB007: Database errors (duplicates, constraints, connections)
package core
