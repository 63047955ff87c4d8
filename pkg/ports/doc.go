// Package ports declares the interfaces between the podgen core and its adapters.
package ports
