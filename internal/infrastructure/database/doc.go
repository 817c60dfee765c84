// Package database provides SQLite connectivity for StableLink Core.
//
// A single SQLite file holds the whole stable: devices, horses,
// feeding history, and the active-feeding and active-stream singleton
// rows whose unique constraints enforce the one-per-horse and
// one-per-user rules. WAL mode keeps reads flowing during writes; the
// pool is pinned to one connection because SQLite has one writer.
//
// Migrations are embedded (see the migrations package) and applied at
// startup with Migrate. They are additive-only: new columns are
// nullable or defaulted, and columns are never dropped or renamed, so
// a rolled-back binary still reads the upgraded schema. Each
// migration ships as an .up.sql/.down.sql pair.
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// All queries use parameterised statements and the database file is
// chmodded to owner read/write.
package database
