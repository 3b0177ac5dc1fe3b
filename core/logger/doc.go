// Package logger records interpreter session events (commands, redirects,
// pipelines and their exit statuses) as newline delimited JSON.
package logger
