// Package pebblestore provides a thin wrapper around Pebble with a fixed
// fsync policy, point operations, and prefix scans. The telemetry journal is
// its only consumer.
//
// Usage:
//
//	db, err := pebblestore.Open(pebblestore.Options{
//	    DataDir: "./data",
//	    Fsync:   pebblestore.FsyncModeInterval,
//	})
//	if err != nil { /* handle */ }
//	defer db.Close()
//
//	_ = db.Set([]byte("k"), []byte("v"))
//	v, _ := db.Get([]byte("k"))
//	_ = db.ScanPrefix([]byte("k"), func(key, value []byte) bool { return true })
package pebblestore
