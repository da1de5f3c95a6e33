// Package language normalizes track language codes and classifies Spanish
// language variants (latino vs castilian) from track titles.
package language
