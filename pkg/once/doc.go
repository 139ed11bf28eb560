// Package once provides one-time file delivery: an authenticated uploader
// gets a short-lived upload credential and a public link, and the first
// download through that link consumes it.
//
// An entry moves through three states. The ticket issuer creates it as
// pending, the delivery gate moves it to served with an atomic
// compare-and-swap, and the sweeper deletes its object and then its
// record.
//
// Example usage:
//
//	repo := memory.New()
//	store := memorystorage.New()
//	svc, err := once.New(
//		once.WithRepository(repo),
//		once.WithBlobStore(store),
//		once.WithSigner(signature.New(signature.WithSecretKey(key))),
//		once.WithBaseURL("https://once.example.com/"),
//	)
//
//	ticket, err := svc.IssueUploadTicket(ctx, once.TicketRequest{
//		Path:      "/",
//		Query:     r.URL.Query(),
//		Signature: r.Header.Get(signature.DefaultHeader),
//	})
package once
