// Command medwh drives the medical channel warehouse: it runs the pipeline
// (scrape, load, transform, enrich), prints reports from the marts, serves
// the HTTP read API and manages Telegram sessions and configuration.
package main
