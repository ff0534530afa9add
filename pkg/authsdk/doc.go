/*
Package authsdk is the Go client for the tenantauth HTTP API, and the home
of the request and response types the server encodes.

Create an SDKClient for public endpoints and to log in:

	client := authsdk.NewSDKClient("https://auth.example.com")

	session, resp, err := client.AuthenticateWithPassword(ctx, authsdk.LoginRequest{
		Email:    "admin@techcorp.com",
		Password: password,
	})
	if err == nil && resp.RequireMFA {
		// The code arrives by email.
		session, err = client.CompleteMFA(ctx, authsdk.VerifyMFARequest{
			UserID: resp.UserID,
			OTP:    code,
		})
	}

A Session carries the bearer token for the remaining calls:

	users, err := session.ListUsers(ctx)
	err = session.DeleteUser(ctx, users[1].ID)

Every failed call returns an *APIError holding the HTTP status and the
server's message:

	if authsdk.IsStatus(err, http.StatusForbidden) {
		// not an admin of this organization
	}
*/
package authsdk
