// Package crawler holds the types and interfaces shared by the subscription
// discovery pipeline: fetch requests and responses, subscription kinds,
// classified records, and the collaborator interfaces wired by internal/app.
package crawler
