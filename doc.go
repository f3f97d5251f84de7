// Package sifter translates source files into language-neutral model
// documents using regex grammars, and searches those models for chains
// through which a tainted value reaches a sink.
//
// # Pipeline
//
// Sifter operates in two phases:
//
//  1. Translate: for each source file, pick the grammar registered for its
//     extension, preprocess the text with the grammar's directives, run the
//     top-level selectors and their sub-selectors, resolve every reference
//     to a global identifier, and write the model as JSON under
//     <output>/<language>/<module path>.json. A model whose recorded hash
//     matches the source is left alone.
//
//  2. Navigate: load model documents (and the models their references
//     point into), find the functions that use an identifier and follow
//     the value through assignments and call arguments into other
//     functions.
//
// # Usage
//
//	e, err := sifter.New(".model", sifter.WithCatalog(".model/catalog.db"))
//	if err != nil { ... }
//	defer e.Close()
//
//	ctx := context.Background()
//	report, err := e.TranslateDirectory(ctx, "path/to/project")
//
//	findings, err := e.Hunt(ctx, sifter.HuntRequest{
//		Language:       "python3",
//		RecursionDepth: 5,
//		Files:          paths,
//	})
//
// # Grammars
//
// Grammars are TOML or YAML documents. The python3 grammar is built in;
// more can be loaded with [WithLangsDir] and [WithGrammarFS]. A grammar
// defines snippets and format strings, which are expanded into regexes,
// preprocessing directives, selectors mapping regex groups to model fields,
// and the mapping of top-level selectors to model sections.
//
// # Catalog
//
// With [WithCatalog] every translated model and every run is recorded in a
// SQLite database. The catalog locates the model declaring a global
// identifier for [Navigator], lets [Engine.Watch] forget removed files, and
// stores the grammar hash so models are re-extracted after a grammar
// changes.
package sifter
