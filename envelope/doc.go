/*
Package envelope implements the tagged payload convention used on every bound call between page code and the native host.

Text crosses the call boundary as an object of the form

	{"__encoding_type__": "base64", "__val__": [104, 105]}

where the payload is the UTF-8 bytes of the text. Decoding is total: an envelope whose tag does not carry a value decodes to absence instead of an error, because decode is applied to native results that are frequently absent.

Results may mix plain JSON with embedded envelopes (a configuration object where only some fields are encoded, or a directory listing of encoded names). DecodeValue walks such trees and decodes each envelope in place.
*/
package envelope
