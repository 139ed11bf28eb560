// Package client shares files through a once service: it signs ticket
// requests with the shared secret and uploads content to the returned
// credential.
//
//	c, err := client.New("https://once.example.com/", secretKey)
//	if err != nil { ... }
//	result, err := c.Share(ctx, "report.pdf", file)
//	fmt.Println(result.Ticket.DownloadURL)
package client
