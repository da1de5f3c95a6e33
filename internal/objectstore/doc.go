// Package objectstore uploads pipeline artifacts to S3-compatible storage.
//
// Addressing is path-style with signature v4 and no client-side timeout on
// body transfers. Public URLs are built from a configured domain rather than
// the endpoint, so the store can sit behind a CDN.
package objectstore
