package demochat

import "html/template"

type pageData struct {
	Welcome     string
	Suggestions []string
	APIPath     string
}

var chatPage = template.Must(template.New("chat").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Chat</title>
<style>
  body { font-family: ui-monospace, monospace; background: #09090b; color: #d4d4d8; margin: 0; }
  main { max-width: 720px; margin: 0 auto; padding: 24px; }
  .row { display: flex; margin: 8px 0; }
  .row.user { justify-content: flex-end; }
  .bubble { max-width: 85%; padding: 10px 12px; font-size: 12px; line-height: 1.6; border-left: 2px solid #52525b; }
  .row.user .bubble { background: #27272a; border: 1px solid #3f3f46; }
  .whitespace-pre-wrap { white-space: pre-wrap; word-break: break-word; }
  .animate-pulse { display: inline-block; width: 2px; height: 1em; background: #3b82f6; margin-left: 2px; vertical-align: middle; animation: pulse 1s infinite; }
  @keyframes pulse { 50% { opacity: .2; } }
  #suggestions button { margin: 4px; background: #18181b; color: #a1a1aa; border: 1px solid #3f3f46; padding: 6px 10px; cursor: pointer; }
  form { display: flex; gap: 8px; margin-top: 16px; }
  input[type=text] { flex: 1; background: #18181b; color: #e4e4e7; border: 1px solid #3f3f46; padding: 8px; }
</style>
</head>
<body>
<main>
  <div id="messages">
    <div class="row assistant"><div class="bubble"><span class="whitespace-pre-wrap break-words">{{.Welcome}}</span></div></div>
  </div>
  <div id="suggestions">{{range .Suggestions}}<button type="button">{{.}}</button>{{end}}</div>
  <form id="chat-form" autocomplete="off">
    <input type="text" placeholder="Ask me anything..." maxlength="500">
    <button type="submit" aria-label="Send">&rarr;</button>
  </form>
</main>
<script>
(function () {
  var API_URL = {{.APIPath}};
  var messages = document.getElementById("messages");
  var suggestions = document.getElementById("suggestions");
  var form = document.getElementById("chat-form");
  var input = form.querySelector("input[type=text]");
  var history = [];
  var busy = false;

  function addMessage(role) {
    var row = document.createElement("div");
    row.className = "row " + role;
    var bubble = document.createElement("div");
    bubble.className = "bubble";
    var span = document.createElement("span");
    span.className = "whitespace-pre-wrap break-words";
    bubble.appendChild(span);
    row.appendChild(bubble);
    messages.appendChild(row);
    return span;
  }

  async function send(text) {
    text = text.trim();
    if (!text || busy) { return; }
    busy = true;
    suggestions.style.display = "none";
    addMessage("user").textContent = text;
    history.push({ role: "user", content: text });
    console.log("[chat] sending message", text.length);

    var span = addMessage("assistant");
    var body = document.createTextNode("");
    var cursor = document.createElement("span");
    cursor.className = "inline-block animate-pulse";
    span.appendChild(body);
    span.appendChild(cursor);

    var full = "";
    try {
      var res = await fetch(API_URL, {
        method: "POST",
        headers: { "Content-Type": "application/json" },
        body: JSON.stringify({ messages: history })
      });
      if (!res.ok) {
        var err = await res.json().catch(function () { return { error: "Request failed" }; });
        body.data = err.error;
        console.error("[chat] api error", res.status, err.error);
        return;
      }
      var reader = res.body.getReader();
      var decoder = new TextDecoder();
      var buffer = "";
      while (true) {
        var chunk = await reader.read();
        if (chunk.done) { break; }
        buffer += decoder.decode(chunk.value, { stream: true });
        var lines = buffer.split("\n");
        buffer = lines.pop() || "";
        for (var i = 0; i < lines.length; i++) {
          var line = lines[i];
          if (line.indexOf("data: ") !== 0) { continue; }
          var payload = line.slice(6).trim();
          if (!payload || payload === "[DONE]") { continue; }
          try {
            var data = JSON.parse(payload);
            if (data.text) { full += data.text; body.data = full; }
            if (data.error) { console.error("[chat] stream error", data.error); }
          } catch (e) {
            console.warn("[chat] malformed chunk");
          }
        }
      }
      history.push({ role: "assistant", content: full });
      console.log("[chat] reply complete", full.length);
    } catch (e) {
      console.error("[chat] request failed", String(e));
    } finally {
      cursor.remove();
      busy = false;
    }
  }

  suggestions.addEventListener("click", function (ev) {
    if (ev.target.tagName === "BUTTON") { send(ev.target.textContent); }
  });
  form.addEventListener("submit", function (ev) {
    ev.preventDefault();
    var text = input.value;
    input.value = "";
    send(text);
  });
  console.log("[chat] page ready");
})();
</script>
</body>
</html>
`))
