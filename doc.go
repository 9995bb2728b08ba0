// Package auth is the identity core of the e-commerce authorization
// service: users, roles and name claims kept in a relational store, bcrypt
// credentials and HS256 bearer tokens.
//
// Identity management:
//   - IdentityManager creates, updates, deletes and authenticates users on
//     top of a CredentialStore. Usernames come from the email local part and
//     match regardless of case. Employees are created without a password and
//     use the full email as username.
//   - Partial updates only touch the fields present in the message. An empty
//     roles list keeps the current roles; a non-empty one replaces them.
//   - With WithTransactions each create or update runs in one store
//     transaction. Without it, a failure after the credential write leaves
//     the earlier writes in place.
//
// Tokens:
//   - TokenService signs tokens carrying the subject, email and a snapshot of
//     the user roles. Role changes apply to tokens issued afterwards.
//
// HTTP:
//   - RegisterRoutes mounts the token, user, role and employee endpoints on a
//     fiber router. ErrorHandler renders go-errors responses and never leaks
//     the source of internal failures.
package auth
