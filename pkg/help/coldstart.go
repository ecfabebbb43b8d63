package help

const ColdstartYAML = `# post-capture Quick Start

platforms:
  twitter: "x.com / twitter.com status links"
  twitter-thread: "Same links with --thread, renders the whole conversation"
  macrumors: "forums.macrumors.com thread posts (#post-N picks the post)"
  bluesky: "bsky.app/profile/<handle>/post/<id>"
  mastodon: "Any instance, /@user/<numeric id>"
  threads: "threads.net / threads.com posts"
  youtube: "youtube.com/watch, youtu.be, /shorts"
  tiktok: "tiktok.com/@user/video/<id>"
  article: "macrumors.com, appleinsider.com, 9to5mac.com and other news sites"

variants:
  standard: "Single card, author header, text, media grid, metrics (default)"
  bento: "Tiled layout with the same content"

commands:
  basic_capture: |
    post-capture capture https://bsky.app/profile/jane.bsky.social/post/3k

  batch: |
    post-capture capture --urls "https://x.com/a/status/1,https://mastodon.social/@b/2" --concurrency 4

  thread_card: |
    post-capture capture --thread https://x.com/a/status/1

  bento: |
    post-capture capture --variant bento -o cards https://www.threads.net/@c/post/C1

  list_runs: |
    post-capture history runs

  run_details: |
    post-capture history show <run-id-prefix>

  retry_failed: |
    post-capture capture --retry-run <run-id-prefix>

output_files:
  - "<platform>-<slug>_<hash>-<timestamp>-card.png (the rendered card)"
  - "<platform>-<slug>_<hash>-<timestamp>-image-N.<ext> (original media)"
  - "<platform>-<slug>_<hash>-<timestamp>-metadata.json (post fields, file names)"
  - "failed.yaml (only when a URL failed)"

history:
  - "Runs and per-URL outcomes are kept in post-capture.db next to the binary"
  - "--history-db moves it, --no-history skips it"
  - "Run ids are UUIDs; any unique prefix works"

error_behavior:
  - "Unsupported URLs: classification_miss, no files written"
  - "Extraction failures: extraction_error:<kind>"
  - "Browser failed to start: stops after the current wave, rest are skipped"
  - "Exit codes: 0=success, 1=partial failure, 2=complete failure"
`
