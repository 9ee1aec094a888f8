// Package pkg provides the core libraries for factorygrid block planning.
//
// # Overview
//
// factorygrid turns target production rates into a placed grid of production
// units. A recipe catalog drives demand resolution, a greedy planner assigns
// ingredient flows between units, and a constraint model searches for the
// placement with the shortest weighted transport distance. The pkg directory
// is organized into four areas:
//
//  1. Domain logic: [catalog], [demand], [factory], [alloc], [placement]
//  2. Search: [cp] (solver engine) and [decode] (solution snapshots)
//  3. Outputs: [blueprint], [io], [render], [runstore]
//  4. Infrastructure: [cache], [history], [archive], [observability],
//     [planfile], [errors], [buildinfo]
//
// [pipeline] ties the stages together for the CLI and the HTTP API.
//
// # Architecture
//
// The typical data flow through factorygrid:
//
//	Recipe catalog + requests
//	         ↓
//	    [demand] (bill of materials, machines per recipe)
//	         ↓
//	    [factory] (unit instances on a grid)
//	         ↓
//	    [alloc] (producer and source flows)
//	         ↓
//	    [placement] + [cp] (search for the best layout)
//	         ↓
//	    [decode] (snapshots of every improving solution)
//	         ↓
//	Blueprint string / layout table / JSON / flow graph
//
// # Quick Start
//
//	cat, hash, err := pipeline.LoadCatalog("recipes.json")
//	if err != nil {
//	    return err
//	}
//	runner := pipeline.NewRunner(nil, nil, logger)
//	res, err := runner.Execute(ctx, cat, pipeline.Options{
//	    Requests:    []demand.Request{{Recipe: "electronic-circuit", Rate: 1}},
//	    Sources:     []factory.Source{{Item: "iron-plate", At: factory.Coord{}}},
//	    CatalogHash: hash,
//	})
//	fmt.Println(res.Blueprint)
//
// # Storage
//
// [cache] holds the best layout of each solved problem (file or Redis) so
// later runs start from it. [runstore] writes one directory per run with
// every improving blueprint string. [history] records objective values in
// SQLite, and [archive] optionally stores full solutions in MongoDB.
package pkg
