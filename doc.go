// Package bungiesearch maps relational records onto Elasticsearch indices
// and keeps the two sides in sync.
//
// A model index declares how one record type serializes: which columns to
// fetch, how each becomes an engine field, and which analyzers the fields
// need. Several model indices can share one engine index.
//
// # Declaring an index from a model
//
//	type Article struct {
//	    ID        int64      `search:"id,pk"`
//	    Title     string     `search:"title"`
//	    Author    string     `search:"author"`
//	    Published *time.Time `search:"published"`
//	    Views     int        `search:"views"`
//	}
//
//	byline, _ := bungiesearch.NewText(
//	    bungiesearch.EvalAs(`object.Title + " by " + object.Author`),
//	)
//	idx, _ := bungiesearch.NewIndex[Article]("content",
//	    bungiesearch.Hotfix("title", bungiesearch.Boost(1.75)),
//	    bungiesearch.WithField("byline", byline),
//	)
//
// Without a Go struct, schema introspection builds the same thing from a
// live table: Client.Introspect plus NewIndexFromColumns.
//
// # Syncing
//
//	client, _ := bungiesearch.New(
//	    bungiesearch.WithAddresses("http://localhost:9200"),
//	    bungiesearch.WithPostgres(os.Getenv("DATABASE_URL")),
//	)
//	defer client.Close()
//
//	_ = client.Register(idx)
//	_ = client.CreateIndices(ctx)
//	stats, _ := client.Update(ctx, bungiesearch.UpdateOptions{})
//	_ = client.UpdateRecord(ctx, "Article", changed)
package bungiesearch
