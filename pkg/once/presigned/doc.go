// Package presigned provides expiring HMAC-signed URLs for the local
// filesystem store, standing in for S3 presigned POST and GET when the
// service runs without AWS.
//
// A signed URL carries the object key, an expiry as unix seconds and a hex
// HMAC-SHA256 over METHOD|KEY|EXPIRES:
//
//	POST /_blob/upload?key=abc123%2Freport.pdf&expires=1700000000&signature=...
//	GET  /_blob/download?key=abc123%2Freport.pdf&expires=1700000000&signature=...
//
// Handlers validates those URLs and moves bytes in and out of an
// ObjectStore.
package presigned
