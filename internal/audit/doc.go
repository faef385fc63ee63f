// Package audit keeps a persistent trail of device connections and
// operator commands in the gateway's SQLite database.
//
// Observer subscribes to gateway events and writes entries on a
// background worker:
//
//	repo := audit.NewSQLiteRepository(db.DB)
//	obs, err := audit.NewObserver(repo, 0, log)
//	if err != nil {
//	    return err
//	}
//	gw.AddObserver(obs)
//	defer obs.Close()
//
// Entries are listed newest first through Repository.List.
package audit
