// Package signature implements the request signing scheme shared by the
// once API and its clients.
//
// A request is signed by computing HMAC-SHA256 over its canonical form,
// the path followed by "?" and the encoded query, and sending the base64
// MAC in a header (x-once-signature by default). The query carries a
// timestamp parameter t formatted as YYYYMMDDHHMMSSffffff in UTC.
// The server accepts a request only when the timestamp is no older than
// the tolerance window and not in the future, and the MAC matches.
//
// Example:
//
//	signer := signature.New(signature.WithSecretKey(key))
//	q := url.Values{"f": {"report.pdf"}, "t": {signature.FormatTimestamp(time.Now())}}
//	req.Header.Set(signer.Header(), signer.SignRequest("/", q))
package signature
