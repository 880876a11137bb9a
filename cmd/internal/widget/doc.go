// Package widget serves the hashtag widget: the HTML page at "/" and the live
// websocket feed at "/stream". Both resolve an access token through the
// session manager and retry a failed search once with a forced re-login.
package widget
