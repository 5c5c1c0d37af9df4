package capture

const pageHead = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>gibberish session capture</title>
  <link rel="icon" href="data:image/svg+xml,<svg xmlns='http://www.w3.org/2000/svg' viewBox='0 0 100 100'><text y='.9em' font-size='90'>🪵</text></svg>" />
  <style>
    :root { color-scheme: light dark; }
    body { margin: 0; font-family: ui-sans-serif, -apple-system, BlinkMacSystemFont, Segoe UI, sans-serif; background: #f7f7f8; color: #1f2328; }
    .container { max-width: 1100px; margin: 0 auto; padding: 1.5rem 1rem 2rem; }
    .summary { background: #ffffff; border: 1px solid #d0d7de; border-radius: 10px; padding: 1rem; margin-bottom: 1rem; }
    .summary h1 { margin: 0 0 0.6rem; font-size: 1.2rem; }
    .summary p { margin: 0.2rem 0; }
    .event { background: #ffffff; border: 1px solid #d0d7de; border-left-width: 6px; border-radius: 10px; margin: 0 0 1rem; padding: 0.8rem 1rem 1rem; }
    .event.user { border-left-color: #0a7c3e; }
    .event.tool { border-left-color: #0969da; }
    .event.assistant { border-left-color: #8250df; }
    .event h2 { margin: 0; font-size: 1rem; }
    .meta { margin-top: 0.2rem; color: #59636e; font-size: 0.85rem; }
    .label { font-weight: 600; margin: 0.8rem 0 0.3rem; display: block; }
    pre { margin: 0; border: 1px solid #d0d7de; border-radius: 8px; padding: 0.75rem; overflow-x: auto; white-space: pre-wrap; background: #f6f8fa; font-family: SFMono-Regular, Menlo, Consolas, monospace; font-size: 0.85rem; line-height: 1.45; }
    .assistant-body { border: 1px solid #d0d7de; border-radius: 8px; padding: 0.75rem 0.9rem; background: #ffffff; }
    .assistant-body > :first-child { margin-top: 0; }
    .assistant-body > :last-child { margin-bottom: 0; }
  </style>
</head>
<body>
  <main class="container">
    <section class="summary">
`
