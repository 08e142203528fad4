// Package authclient is a Go client for the authentication service that
// behaves like an in-browser script client: tokens come back in the JSON body
// and are kept in a namespaced client-side store instead of cookies.
//
// Basic usage:
//
//	store := authclient.NewTokenStore(authclient.NewMemoryStorage(), "myapp")
//	client := authclient.New("https://auth.example.com", store)
//
//	if _, err := client.Login(ctx, "a@x.com", "secret1"); err != nil {
//		// handle error
//	}
//	user, err := client.User(ctx)
//
// The stored entry is discarded on read once it is older than one hour. That
// check is a local heuristic only; the server remains the authority on token
// expiry.
package authclient
