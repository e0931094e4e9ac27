// Package models defines domain entities and persistence interfaces for synchronic.
//
// The package contains two categories of types:
//
// 1. Data Transfer Objects (DTOs): Lightweight structs representing external service data
//   - [Section] : A Plex library section
//   - [MediaItem] : A show in a Plex section with watched and total episode counts
//   - [Entry] : A MyAnimeList list entry (id, title, status, episodes, score, tags)
//   - [Status] : The list status enumeration shared by the classifier and the tracker
//
// 2. Persistent Entities: Database-backed run history
//   - [SyncRun] : One execution of the sync driver with its counts
//   - [SyncRecord] : One media item's outcome within a run
//
// Persistent entities implement the Model interface providing ID generation, timestamps and validation.
// The Repository[T] interface defines standard CRUD operations for database access.
package models
