// Package domain defines the core data structures of the Steris client library.
// It contains the primary domain models, such as TokenPair, UserProfile, and Notification,
// as well as the repository interface that defines the contract for credential persistence.
//
// This package serves as the central point for application-wide types and session rules,
// ensuring a clean separation between the library's core logic and its implementation details,
// such as the database, the HTTP transport, or the websocket channel. By defining an interface
// for the credential repository, the domain package remains independent of the storage technology.
package domain
