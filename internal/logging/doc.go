// Package logging sets up structured JSON logging for MagicFolder.
// Logs go to a size-rotated file under ~/.magicfolder/logs and, unless the
// process is serving MCP over stdio, to stderr as well.
package logging
