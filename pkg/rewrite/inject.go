package rewrite

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/andesco/whitelabel/pkg/config"
)

const brandingStyle = `<style data-whitelabel>
[style*="color:#"], [style*="color: #"] { color: %[1]s !important; }
[style*="background-color:#"], [style*="background-color: #"] { background-color: %[1]s !important; }
[class*="%[3]s" i], .logo-%[3]s, .%[3]s-brand { display: none !important; }
body::before {
  content: "";
  position: fixed;
  top: 0;
  left: 0;
  width: 100%%;
  height: 60px;
  background: %[1]s url(%[4]s) no-repeat 20px center / auto 40px;
  z-index: 2147483647;
}
body { padding-top: 60px !important; }
button, .btn, input[type="submit"] { background-color: %[1]s !important; border-color: %[1]s !important; }
button:hover, .btn:hover, input[type="submit"]:hover { background-color: %[2]s !important; border-color: %[2]s !important; }
a { color: %[1]s !important; }
a:hover { color: %[2]s !important; }
</style>`

// The shim mirrors URL for requests the page's own scripts make after load.
const clientShim = `<script data-whitelabel>
(function () {
  var proxyOrigin = %s;
  var upstreamBase = %s;
  var upstreamDomain = %s;

  function rewrite(url) {
    if (typeof url !== 'string') return url;
    if (url.indexOf('/') === 0) return proxyOrigin + url;
    if (upstreamDomain && url.indexOf(upstreamDomain) !== -1) return url.replace(upstreamBase, proxyOrigin);
    return url;
  }

  if (window.fetch) {
    var originalFetch = window.fetch;
    window.fetch = function (input, init) {
      return originalFetch.call(this, rewrite(input), init);
    };
  }

  var originalOpen = XMLHttpRequest.prototype.open;
  XMLHttpRequest.prototype.open = function (method, url) {
    var args = Array.prototype.slice.call(arguments);
    args[1] = rewrite(url);
    return originalOpen.apply(this, args);
  };

  var originalPushState = history.pushState;
  history.pushState = function (state, title, url) {
    return originalPushState.call(this, state, title, rewrite(url));
  };
})();
</script>`

func styleBlock(b config.Branding, brand string) string {
	return fmt.Sprintf(brandingStyle,
		b.PrimaryColor,
		b.SecondaryColor,
		strings.ToLower(brand),
		jsString(b.LogoURL),
	)
}

func shimBlock(rc Context, t config.Target) string {
	return fmt.Sprintf(clientShim, jsString(rc.Base()), jsString(t.BaseURL), jsString(t.Domain))
}

// jsString quotes s as a JSON string, which is also a valid JS and CSS string
// literal. json escapes <, > and & so the result cannot close the element.
func jsString(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}
