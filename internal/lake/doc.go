// Package lake reads and writes the partitioned raw message lake.
//
// Layout under the data directory:
//
//	raw/telegram_messages/YYYY-MM-DD/<channel>.json   indented JSON array of Message
//	raw/images/<channel>/<message_id>.jpg             downloaded post images
//
// Files are replaced atomically, so a concurrent loader never reads a torn
// file. Image paths recorded in messages are relative to the data directory.
package lake
