// Package agentclient is the small HTTP client an Agent uses to talk back
// to Home: fetching a deployment spec it doesn't have locally, and pushing
// its own status. Grounded on Strob0t-CodeForge's litellm.Client shape
// (baseURL + bearer-token header + a timeout-bounded http.Client).
package agentclient
