// Package download implements resumable HTTP fetch with Range-header
// resume, exponential backoff via cenkalti/backoff, and post-download hash
// verification. Every loader materialization step and the content
// installer's file fetch go through Downloader.Fetch.
package download
