// Package aggregate computes count/sum/avg/min/max over a column of
// documents without materializing whole rows, using Parquet row-group
// statistics to shortcut min/max and count(*) when they are available.
package aggregate
