// Package postgres provides the pgx connection pool and goose migration
// plumbing used by the Postgres session store.
//
// Typical startup:
//
//	cfg, err := env.ParseAs[postgres.Config]()
//	pool, err := postgres.Connect(ctx, cfg)
//	defer pool.Close()
//
//	if err := postgres.Migrate(ctx, pool, session.PostgresMigrations, cfg.MigrationsTable, log); err != nil {
//	    return err
//	}
//	store := session.NewPostgresStore(pool)
package postgres
