/*
Package dump writes and reads snapshots of a record store.

A dump file starts with the magic "DSTATSDUMP\x00" followed by one frame per
key-value pair:

	keyLen uint32 | key | valueLen uint32 | snappy(value)

Lengths are big endian, valueLen is the length of the compressed value.
Keys are written verbatim, so restoring a dump reproduces every key family
of the store (records, update log, users, settings and cursors).

Dumps are written to a local path or to an S3 object (s3://bucket/key).
*/
package dump
