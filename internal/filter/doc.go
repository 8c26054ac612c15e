// Package filter evaluates Mongo-style filter trees against documents.
package filter
