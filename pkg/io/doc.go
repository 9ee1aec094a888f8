// Package io provides JSON import and export for solved layouts.
//
// # Overview
//
// A layout document is self-contained: it carries every placed unit with
// its grid position together with the recipes those units run. That is
// enough to rebuild the blueprint, redraw the layout table or archive the
// solution without the catalog or the solver.
//
// # JSON Format
//
//	{
//	  "objective": 5000,
//	  "bounds": {"lx": 1, "ux": 3, "ly": 1, "uy": 3},
//	  "recipes": [
//	    {
//	      "name": "gear",
//	      "energy": 0.5,
//	      "ingredients": [{"name": "iron", "amount": 2}],
//	      "product": {"name": "gear", "amount": 1}
//	    }
//	  ],
//	  "units": [
//	    {"id": "x_gear_1", "recipe": "gear", "amount": 1, "x": 2, "y": 3}
//	  ]
//	}
//
// # Export
//
// Use [NewDocument] on a set of placements and [WriteJSON] or [ExportJSON]
// to persist it. The same [Document] type carries bson tags and is what the
// archive stores in MongoDB.
//
// # Import
//
// Use [ImportJSON] or [ReadJSON], then [Document.Placements] to recover the
// placements:
//
//	doc, err := io.ImportJSON("best_layout.json")
//	if err != nil {
//	    return err
//	}
//	placements, err := doc.Placements()
//
// Placements fails when a unit names a recipe the document does not carry,
// when two units share an ID or a cell, or when a unit lies outside the
// document bounds.
package io
