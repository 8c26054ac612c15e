// Package document defines the dynamic value model shared by every
// ParqueDB component that reads or writes an entity: a small sum type
// for user data plus the identity/versioning header that turns a plain
// document into an Entity.
package document
