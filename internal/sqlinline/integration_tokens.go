package sqlinline

// QSelectIntegrationToken returns the token and its recorded environment,
// empty when the key was stored without one.
const QSelectIntegrationToken = `--sql 3c1f6a0e-58d4-4b0f-9a57-2e6c1d0b7f41
select token, coalesce(properties->>'environment', '')
from integration_tokens
where provider = $1::text;
`

const QUpsertIntegrationToken = `--sql b7e94d20-1a3c-4f8e-8d65-5f0a2c9e6b18
insert into integration_tokens (id, provider, token, properties, created_at, updated_at)
values (gen_random_uuid(), $1::text, $2::text, coalesce($3::jsonb, '{}'::jsonb), now(), now())
on conflict (provider) do update set
    token = excluded.token,
    properties = excluded.properties,
    updated_at = now();
`
