// Package processor turns raw crawler events into canonical records.
//
// Every event is resolved to a user and a company: emails and directory ids
// are looked up in the user table of the record store, unknown identities
// create new users and identities proven to be the same person are merged.
// Companies come from the longest known email domain suffix, else from the
// user's affiliation history at the event date.
//
// Facts that need the complete record set (canonical user ids after merges,
// review numbers, core reviewers, disagreements, blueprint mentions) are
// computed by Finalize after an ingestion run.
package processor
