// Package selection holds the set of entities a Couch Control instance
// exposes, and everything that reads or changes it.
//
// The pieces, leaves first:
//
//   - Store persists a versioned Record through a Backend (SQLite or an
//     object store). Load never fails: unreadable or mismatched records
//     read as "no selection" and are logged.
//   - Cache is the in-memory copy consulted on every request.
//   - Filter answers membership questions against a Cache and projects
//     state snapshots onto the selection. Union combines several filters.
//   - Writer persists the latest selection in the background.
//   - Mutator is the only write path: it validates ids, updates the Cache
//     synchronously and schedules a Writer save.
//
// Usage:
//
//	cache := selection.NewCache()
//	store := selection.NewStore(backend, selection.StorageKey(entryID))
//	ids, _ := store.Load(ctx)
//	cache.Replace(ids)
//
//	writer := selection.NewWriter(store)
//	defer writer.Close(ctx)
//
//	mut := selection.NewMutator(cache, registry, states, writer)
//	res := mut.Replace([]string{"light.kitchen", "sensor.temp"})
package selection
