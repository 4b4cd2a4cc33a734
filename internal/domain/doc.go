// Package domain models Washington State DOH wastewater surveillance data.
//
// # Data Source
//
// The Department of Health publishes a single downloadable CSV, by default at
// https://doh.wa.gov/sites/default/files/Data/Downloadable_Wastewater.csv.
// The whole file is republished on every update; historical rows are repeated
// and may be rewritten in place. The ingest service polls it, parses every row,
// and keeps the first version of each measurement it sees.
//
// # Columns
//
// Columns are located by header name, so reordering is tolerated but renaming
// is not:
//
//	Sample Collection Date                                      YYYY-MM-DD
//	Site Name                                                   text
//	County                                                      text
//	PCR Pathogen Target                                         text, e.g. "SARS-CoV-2"
//	PCR Gene Target                                             text, e.g. "N1"
//	Normalized Pathogen Concentration (gene copies/person/day)  float
//	Date/Time Updated                                           YYYY-MM-DD HH:MM:SS.ffffff
//
// Concentrations are normalized per site with site-specific methods, so values
// are only comparable within one site.
//
// # Time Zones
//
// "Date/Time Updated" carries no offset. It is Pacific civil time and is
// resolved against America/Los_Angeles (zone data embedded via time/tzdata):
//
//	single instant           used as-is
//	fall-back (ambiguous)    the later UTC instant, i.e. the PST reading
//	spring-forward (gap)     rejected with [InvalidLocalTimeError]
//
// See [ResolvePacific].
//
// # Natural Key
//
// A measurement is identified by (sample collection date, site name, county,
// pathogen target, gene target). Matching is exact; no case or whitespace
// folding is applied. See [NaturalKey].
package domain
